package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("events")

		collection.Fields.Add(
			&core.TextField{Name: "artist_id", Required: true},
			&core.TextField{Name: "name", Required: true},
			&core.TextField{Name: "venue"},
			&core.TextField{Name: "city"},
			&core.DateField{Name: "date"},
			&core.NumberField{Name: "queue_capacity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "current_queue_size", OnlyInt: true},
			&core.BoolField{Name: "is_active"},
			&core.NumberField{Name: "min_price"},
			&core.NumberField{Name: "max_price"},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
