package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("poll_questions")

		collection.Fields.Add(
			&core.TextField{Name: "artist_id", Required: true},
			&core.TextField{Name: "question", Required: true},
			&core.JSONField{Name: "options", MaxSize: 2048},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("poll_questions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
