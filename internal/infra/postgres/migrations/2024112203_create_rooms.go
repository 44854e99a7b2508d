package migrations

import _ "embed"

//go:embed 0003_create_rooms.sql
var createRoomsSQL string

func init() {
	Migrations.MustRegister(execSQL(createRoomsSQL), dropTable("rooms"))
}
