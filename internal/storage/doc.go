package storage

// Package storage provides the persistence layer the scheduler uses to
// make every state-affecting alert change crash/restart safe.
//
// It supports two backends, selected by Config.Driver:
//   - "file": dependency-free JSON-lines journal plus periodic snapshot
//   - "sqlite": an embedded SQLite database (build tag "sqlite")
