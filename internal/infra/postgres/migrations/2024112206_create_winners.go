package migrations

import _ "embed"

//go:embed 0006_create_winners.sql
var createWinnersSQL string

func init() {
	Migrations.MustRegister(execSQL(createWinnersSQL), dropTable("winners"))
}
