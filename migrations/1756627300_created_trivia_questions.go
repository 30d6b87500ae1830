package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("trivia_questions")

		collection.Fields.Add(
			&core.TextField{Name: "artist_id", Required: true},
			&core.TextField{Name: "question", Required: true},
			&core.JSONField{Name: "options", MaxSize: 2048},
			&core.NumberField{Name: "correct_answer", Required: true, OnlyInt: true},
			&core.SelectField{Name: "difficulty", Values: []string{"easy", "medium", "hard"}, MaxSelect: 1},
			&core.TextField{Name: "category"},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("trivia_questions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
