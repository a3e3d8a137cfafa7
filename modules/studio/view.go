package studio

import (
	"errors"
	"fmt"
	"time"

	"portfolio-studio-server/modules/common/model"
)

// View - render state of one modal, pushed over the websocket
type View struct {
	ModalID   string          `json:"modalId"`
	ProjectID string          `json:"projectId"`
	Kind      model.JobKind   `json:"kind"`
	Phase     Phase           `json:"phase"`
	Closed    bool            `json:"closed"`
	CanSubmit bool            `json:"canSubmit"`
	Input     *InputView      `json:"input,omitempty"`
	JobID     string          `json:"jobId,omitempty"`
	Progress  int             `json:"progress"`
	Error     string          `json:"error,omitempty"`
	ErrorKind model.ErrorKind `json:"errorKind,omitempty"`
	Result    *ResultView     `json:"result,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// InputView - what is selected, without the bytes
type InputView struct {
	Origin      model.Origin `json:"origin"`
	URL         string       `json:"url,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Prompt      string       `json:"prompt,omitempty"`
	AspectRatio string       `json:"aspectRatio,omitempty"`
}

// ResultView - result metadata; bytes are served from ResultURL
type ResultView struct {
	MimeType  string `json:"mimeType"`
	Size      int    `json:"size"`
	ResultURL string `json:"resultUrl"`
}

// ResultPath - where the handler serves a modal's result bytes
func ResultPath(modalID string) string {
	return fmt.Sprintf("/api/studio/modals/%s/result", modalID)
}

// view - caller holds m.mu
func (m *Modal) view() View {
	v := View{
		ModalID:   m.id,
		ProjectID: m.projectID,
		Kind:      m.kind,
		Phase:     m.phase,
		Closed:    m.closed,
		CanSubmit: !m.closed && m.phase == PhaseReady,
		JobID:     m.jobID,
		Progress:  m.progress,
		CreatedAt: m.createdAt,
		UpdatedAt: m.lastActivity,
	}
	if m.hasInput {
		v.Input = &InputView{
			Origin:      m.input.Asset.Origin,
			URL:         m.input.Asset.URL,
			MimeType:    m.input.Asset.MimeType,
			Prompt:      m.input.Prompt,
			AspectRatio: m.input.AspectRatio,
		}
	}
	if m.phase == PhaseFailed && m.err != nil {
		v.Error = m.err.Error()
		var je *jobError
		if errors.As(m.err, &je) {
			v.ErrorKind = je.kind
		} else {
			v.ErrorKind = model.KindOf(m.err)
		}
	}
	if m.phase == PhaseSucceeded && m.result != nil {
		v.Result = &ResultView{
			MimeType:  m.result.MimeType,
			Size:      len(m.result.Data),
			ResultURL: ResultPath(m.id),
		}
	}
	return v
}
