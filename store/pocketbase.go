package store

import (
	"context"
	"math/rand"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
)

// PocketBase reads event and question documents from the embedded
// PocketBase collections. Queue state never lives here; see Redis.
type PocketBase struct {
	app core.App
}

func NewPocketBase(app core.App) *PocketBase {
	return &PocketBase{app: app}
}

func (p *PocketBase) FindEventByID(ctx context.Context, eventID string) (*models.Event, error) {
	record, err := p.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, status.ErrEventNotFound
	}
	return eventFromRecord(record), nil
}

func eventFromRecord(record *core.Record) *models.Event {
	return &models.Event{
		ID:               record.Id,
		ArtistID:         record.GetString("artist_id"),
		Name:             record.GetString("name"),
		Venue:            record.GetString("venue"),
		City:             record.GetString("city"),
		Date:             record.GetDateTime("date").Time(),
		QueueCapacity:    record.GetInt("queue_capacity"),
		CurrentQueueSize: record.GetInt("current_queue_size"),
		IsActive:         record.GetBool("is_active"),
		MinPrice:         decimal.NewFromFloat(record.GetFloat("min_price")),
		MaxPrice:         decimal.NewFromFloat(record.GetFloat("max_price")),
	}
}

func (p *PocketBase) SaveEvent(ctx context.Context, event *models.Event) error {
	record, err := p.app.FindRecordById("events", event.ID)
	if err != nil {
		return status.ErrEventNotFound
	}
	record.Set("current_queue_size", event.CurrentQueueSize)
	record.Set("is_active", event.IsActive)
	return p.app.Save(record)
}

func (p *PocketBase) FindQuestionByID(ctx context.Context, questionID string) (*models.ChallengeQuestion, error) {
	record, err := p.app.FindRecordById("trivia_questions", questionID)
	if err != nil {
		return nil, status.ErrQuestionNotFound
	}
	return questionFromRecord(record), nil
}

func questionFromRecord(record *core.Record) *models.ChallengeQuestion {
	return &models.ChallengeQuestion{
		ID:            record.Id,
		ArtistID:      record.GetString("artist_id"),
		Question:      record.GetString("question"),
		Options:       record.GetStringSlice("options"),
		CorrectAnswer: record.GetInt("correct_answer"),
		Difficulty:    models.Difficulty(record.GetString("difficulty")),
		Category:      record.GetString("category"),
	}
}

func (p *PocketBase) FindRandomQuestion(ctx context.Context, artistID string, excludeIDs []string) (*models.ChallengeQuestion, error) {
	filter := "id != ''"
	params := dbx.Params{}
	if artistID != "" {
		filter = "artist_id = {:artistId}"
		params["artistId"] = artistID
	}
	records, err := p.app.FindRecordsByFilter("trivia_questions", filter, "", -1, 0, params)
	if err != nil || len(records) == 0 {
		return nil, status.ErrQuestionNotFound
	}

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	pool := make([]*core.Record, 0, len(records))
	for _, record := range records {
		if !excluded[record.Id] {
			pool = append(pool, record)
		}
	}
	// An exclusion that empties the pool is the caller's to resolve; a
	// silent fallback here would hand back the excluded question.
	if len(pool) == 0 {
		return nil, status.ErrQuestionNotFound
	}
	return questionFromRecord(pool[rand.Intn(len(pool))]), nil
}
