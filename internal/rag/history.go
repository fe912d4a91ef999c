package rag

import (
	"resume-rag/internal/helper"
	"resume-rag/internal/models"
)

// History holds the answers of one session, oldest first. Append returns a
// new History and never mutates the receiver's backing array.
type History struct {
	SessionID string                `json:"session_id"`
	Records   []models.AnswerRecord `json:"records"`
}

func NewHistory() (History, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return History{}, err
	}
	return History{SessionID: id}, nil
}

func (h History) Append(rec models.AnswerRecord) History {
	records := make([]models.AnswerRecord, len(h.Records), len(h.Records)+1)
	copy(records, h.Records)
	return History{SessionID: h.SessionID, Records: append(records, rec)}
}

// Latest returns the most recent record.
func (h History) Latest() (models.AnswerRecord, bool) {
	if len(h.Records) == 0 {
		return models.AnswerRecord{}, false
	}
	return h.Records[len(h.Records)-1], true
}

// Previous returns every record except the latest, newest first.
func (h History) Previous() []models.AnswerRecord {
	if len(h.Records) < 2 {
		return nil
	}
	out := make([]models.AnswerRecord, 0, len(h.Records)-1)
	for i := len(h.Records) - 2; i >= 0; i-- {
		out = append(out, h.Records[i])
	}
	return out
}

func (h History) Len() int { return len(h.Records) }
