package migrations

import _ "embed"

//go:embed 0002_create_slides.sql
var createSlidesSQL string

func init() {
	Migrations.MustRegister(execSQL(createSlidesSQL), dropTable("slides"))
}
