package migrations

import _ "embed"

//go:embed 0004_create_room_players.sql
var createRoomPlayersSQL string

func init() {
	Migrations.MustRegister(execSQL(createRoomPlayersSQL), dropTable("room_players"))
}
