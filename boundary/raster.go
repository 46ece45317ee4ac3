package boundary

import (
	"image"
	"math"

	"cropwatch/models"
)

// moore lists the 8 neighbours clockwise on screen (row 0 at the top),
// starting west.
var moore = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

func mooreIndex(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return -1
}

// grid holds per-pixel derived layers of one raster.
type grid struct {
	r    *models.IndexRaster
	mask []bool    // cultivated
	grad []float64 // normalized Sobel magnitude
}

func newGrid(r *models.IndexRaster, cultivated float64) *grid {
	g := &grid{r: r, mask: make([]bool, len(r.Values))}
	for i, v := range r.Values {
		g.mask[i] = v >= cultivated
	}
	g.grad = sobel(r)
	return g
}

// sobel returns the gradient magnitude divided by 8, so a step of d between
// two flat regions yields about d/2 on both sides of the step. Borders
// replicate the nearest pixel.
func sobel(r *models.IndexRaster) []float64 {
	w, h := r.Width, r.Height
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return r.Values[y*w+x]
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			out[y*w+x] = math.Hypot(gx, gy) / 8
		}
	}
	return out
}

// gradAround returns the strongest gradient within one pixel of (x, y).
func (g *grid) gradAround(x, y int) float64 {
	best := 0.0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if g.r.InBounds(x+dx, y+dy) {
				best = math.Max(best, g.grad[(y+dy)*g.r.Width+x+dx])
			}
		}
	}
	return best
}

// component is one 4-connected region of cultivated pixels.
type component struct {
	label  int
	pixels int
	start  image.Point // first pixel in scan order
}

// label assigns 4-connected component labels to the cultivated mask.
// Labels start at 1; 0 is background.
func (g *grid) label() ([]int, []component) {
	w, h := g.r.Width, g.r.Height
	labels := make([]int, w*h)
	var comps []component
	queue := make([]int, 0, 64)
	for i := range labels {
		if !g.mask[i] || labels[i] != 0 {
			continue
		}
		c := component{label: len(comps) + 1, start: image.Point{X: i % w, Y: i / w}}
		labels[i] = c.label
		queue = append(queue[:0], i)
		for len(queue) > 0 {
			p := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			c.pixels++
			x, y := p%w, p/w
			for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d.X, y+d.Y
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				n := ny*w + nx
				if g.mask[n] && labels[n] == 0 {
					labels[n] = c.label
					queue = append(queue, n)
				}
			}
		}
		comps = append(comps, c)
	}
	return labels, comps
}

// trace follows the outer boundary of the region containing start with
// Moore-neighbour tracing and Jacob's stopping criterion. start must be the
// region's first pixel in scan order. The result is closed: the last point
// repeats the first. An isolated pixel yields a single point.
func trace(start image.Point, inside func(p image.Point) bool, limit int) []image.Point {
	contour := []image.Point{start}
	cur := start
	back := 0 // west of start is outside by scan order
	firstMove := -1
	for steps := 0; steps < limit; steps++ {
		found := -1
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			if inside(cur.Add(moore[d])) {
				found = d
				break
			}
		}
		if found < 0 {
			return contour
		}
		if cur == start {
			if firstMove == found {
				break
			}
			if firstMove < 0 {
				firstMove = found
			}
		}
		next := cur.Add(moore[found])
		back = mooreIndex(cur.Add(moore[(found+7)%8]).Sub(next))
		cur = next
		contour = append(contour, cur)
	}
	return contour
}

// contours traces the outer ring of every component with at least
// minPixels pixels.
func (g *grid) contours(minPixels int) [][]image.Point {
	labels, comps := g.label()
	w, h := g.r.Width, g.r.Height
	var out [][]image.Point
	for _, c := range comps {
		if c.pixels < minPixels {
			continue
		}
		id := c.label
		inside := func(p image.Point) bool {
			return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && labels[p.Y*w+p.X] == id
		}
		ring := trace(c.start, inside, 4*c.pixels+8)
		if len(ring) >= 4 {
			out = append(out, ring)
		}
	}
	return out
}
