package migrations

import _ "embed"

//go:embed 0005_create_player_responses.sql
var createPlayerResponsesSQL string

func init() {
	Migrations.MustRegister(execSQL(createPlayerResponsesSQL), dropTable("player_responses"))
}
