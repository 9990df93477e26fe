// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store package, and a
// broker.Broker driver that keeps channel messages in a table leased with
// SELECT ... FOR UPDATE SKIP LOCKED. It handles the details of database
// connections, schema migrations, query execution, and error mapping.
package postgres
