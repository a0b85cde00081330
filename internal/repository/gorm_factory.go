package repository

import (
	"gorm.io/gorm"
)

// gormFactory binds mappers to one relational database handle. The handle's
// connection pool is the unit of sharing: mappers from factories over the
// same handle observe each other's committed writes.
type gormFactory struct {
	db *gorm.DB
}

// NewGormFactory creates a Factory over an open GORM handle.
func NewGormFactory(db *gorm.DB) Factory {
	return &gormFactory{db: db}
}

// MailboxMapper returns a mailbox mapper for the given session.
func (f *gormFactory) MailboxMapper(sessionID string) MailboxMapper {
	return &gormMailboxMapper{db: f.db, sessionID: sessionID}
}

// MessageMapper returns a message mapper for the given session.
func (f *gormFactory) MessageMapper(sessionID string) MessageMapper {
	return &gormMessageMapper{db: f.db, sessionID: sessionID}
}

// NextUIDValidity returns a fresh UID-validity marker.
func (f *gormFactory) NextUIDValidity() uint32 {
	return NextUIDValidity()
}

// Close closes the underlying database connection.
func (f *gormFactory) Close() error {
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
