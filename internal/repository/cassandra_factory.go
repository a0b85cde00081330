package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Cassandra schema. Mailbox ids come from a sequence row advanced with a
// lightweight transaction, paths are claimed with IF NOT EXISTS, and the
// UID/MODSEQ counters move through a compare-and-set loop so concurrent
// allocations on one mailbox can never hand out overlapping ranges.
var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS mailstore_sequences (
		name text PRIMARY KEY,
		next bigint
	)`,
	`CREATE TABLE IF NOT EXISTS mailboxes (
		id bigint PRIMARY KEY,
		namespace text,
		owner text,
		name text,
		uid_validity int,
		uid_next bigint,
		next_mod_seq bigint
	)`,
	`CREATE TABLE IF NOT EXISTS mailbox_by_path (
		namespace text,
		owner text,
		name text,
		id bigint,
		PRIMARY KEY ((namespace, owner, name))
	)`,
	`CREATE TABLE IF NOT EXISTS mailbox_acl (
		mailbox_id bigint,
		identifier text,
		rights text,
		PRIMARY KEY (mailbox_id, identifier)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		mailbox_id bigint,
		uid bigint,
		mod_seq bigint,
		size bigint,
		received_at timestamp,
		subject text,
		content_type text,
		content_ref text,
		flags set<text>,
		PRIMARY KEY (mailbox_id, uid)
	)`,
}

// CassandraConfig holds connection settings for the columnar backend.
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// cassandraFactory binds mappers to one Cassandra session.
type cassandraFactory struct {
	session *gocql.Session
}

// NewCassandraFactory connects to the cluster, ensures the schema and
// returns a Factory over the session.
func NewCassandraFactory(cfg CassandraConfig) (Factory, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cassandra: %w", err)
	}

	for _, stmt := range cassandraSchema {
		if err := session.Query(stmt).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to ensure cassandra schema: %w", err)
		}
	}

	return &cassandraFactory{session: session}, nil
}

// MailboxMapper returns a mailbox mapper for the given session.
func (f *cassandraFactory) MailboxMapper(sessionID string) MailboxMapper {
	return &cassandraMailboxMapper{session: f.session, sessionID: sessionID}
}

// MessageMapper returns a message mapper for the given session.
func (f *cassandraFactory) MessageMapper(sessionID string) MessageMapper {
	return &cassandraMessageMapper{session: f.session, sessionID: sessionID}
}

// NextUIDValidity returns a fresh UID-validity marker.
func (f *cassandraFactory) NextUIDValidity() uint32 {
	return NextUIDValidity()
}

// Close shuts the Cassandra session down.
func (f *cassandraFactory) Close() error {
	f.session.Close()
	return nil
}

// translateCassandraError maps driver errors onto the mapper sentinels.
func translateCassandraError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gocql.ErrNotFound) {
		return ErrNotFound
	}
	var unavailable *gocql.RequestErrUnavailable
	if errors.As(err, &unavailable) || errors.Is(err, gocql.ErrTimeoutNoResponse) || errors.Is(err, gocql.ErrNoConnections) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
