package main

import (
	"encoding/json"
	"net/http"

	"cropwatch/models"
	"cropwatch/phenology"
)

// handleListCrops returns the crop profile table.
func (a *App) handleListCrops(w http.ResponseWriter, r *http.Request) {
	profiles := a.phenology.Profiles()
	out := make([]cropResp, 0, len(profiles))
	for _, crop := range profiles.Crops() {
		p := profiles[crop]
		stages := make([]models.GrowthStage, len(p.Stages))
		for i, s := range p.Stages {
			stages[i] = s.Stage
		}
		out = append(out, cropResp{Crop: crop, Name: p.Name, SeasonDays: p.SeasonDays(), Stages: stages})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTimeline projects a crop calendar. Query: crop, planting.
func (a *App) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("planting") == "" {
		http.Error(w, "planting is required", http.StatusBadRequest)
		return
	}
	planting, err := parseDate(q.Get("planting"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.phenology.GetPhenologyTimeline(models.CropKind(q.Get("crop")), planting)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStageBatch classifies many fields in one call.
func (a *App) handleStageBatch(w http.ResponseWriter, r *http.Request) {
	var req stageBatchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(req.Fields) == 0 {
		http.Error(w, "fields are required", http.StatusBadRequest)
		return
	}
	reqs := make([]phenology.Request, len(req.Fields))
	for i, f := range req.Fields {
		reqs[i] = f.toRequest()
	}
	out, err := a.phenology.DetectMany(r.Context(), reqs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stageBatchResp{Results: out})
}
