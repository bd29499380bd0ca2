// Package storage persists exam data in a local SQLite database.
//
// The database owns attempts, questions, captured responses, grading
// ratings and the app_settings key/value table used for recipient
// configuration. Schema setup runs on open: the embedded migrations.sql
// creates missing tables, then additive column migrations bring older
// databases up to date.
package storage
