package server

import (
	"time"

	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/tracker"
)

type halfView struct {
	Status      tracker.Status `json:"status"`
	Error       string         `json:"error,omitempty"`
	HasCropped  bool           `json:"has_cropped"`
	HasExpanded bool           `json:"has_expanded"`
}

type itemView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	DisplayName string              `json:"display_name"`
	MIMEType    string              `json:"mime_type"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	Axis        string              `json:"axis,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	Parts       map[string]halfView `json:"parts"`
}

func newItemView(item tracker.WorkItem) itemView {
	v := itemView{
		ID:          item.ID,
		Name:        item.Name,
		DisplayName: ingest.DisplayName(item.Name, displayNameLimit),
		MIMEType:    item.Original.MIMEType,
		Width:       item.Original.Width,
		Height:      item.Original.Height,
		Axis:        string(item.Axis),
		CreatedAt:   item.CreatedAt,
		Parts:       make(map[string]halfView, len(tracker.Parts)),
	}
	for _, p := range tracker.Parts {
		h := item.Half(p)
		v.Parts[string(p)] = halfView{
			Status:      h.Status,
			Error:       h.Err,
			HasCropped:  h.Cropped != nil,
			HasExpanded: h.Expanded != nil,
		}
	}
	return v
}

type skippedView struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
