// Package cli implements the herpsync command-line client.
//
// Every command works against the local database first. Commands that talk
// to the backend (sync, device --register, daemon) leave local data intact
// when the backend is unreachable.
//
//	herpsync create animal --set name=Pixel --set species=ball_python --set weight:=1320
//	herpsync list animals --filter status=active --sort name
//	herpsync sync
//	herpsync daemon --auto-sync 5m
package cli
