package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/webrana-mailstore/internal/models"
	"gorm.io/gorm"
)

// gormMessageMapper implements MessageMapper using GORM
type gormMessageMapper struct {
	db        *gorm.DB
	sessionID string
}

// Create stores a new message record with its flags
func (m *gormMessageMapper) Create(ctx context.Context, message *models.Message) error {
	result := m.db.WithContext(ctx).Create(message)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("uid %d already stored in mailbox %d: %w", message.UID, message.MailboxID, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create message: %w", result.Error)
	}
	return nil
}

// GetByUIDs returns the messages with the given UIDs in ascending UID order.
// UIDs with no message are skipped.
func (m *gormMessageMapper) GetByUIDs(ctx context.Context, mailboxID uint, uids []uint32) ([]models.Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	var messages []models.Message
	result := m.db.WithContext(ctx).
		Preload("Flags").
		Where("mailbox_id = ? AND uid IN ?", mailboxID, uids).
		Order("uid ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get messages by UID: %w", result.Error)
	}
	return messages, nil
}

// ListByMailbox returns all messages of a mailbox in ascending UID order
func (m *gormMessageMapper) ListByMailbox(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	var messages []models.Message
	result := m.db.WithContext(ctx).
		Preload("Flags").
		Where("mailbox_id = ?", mailboxID).
		Order("uid ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list messages: %w", result.Error)
	}
	return messages, nil
}

// UpdateFlags replaces the flag set of one message and stamps the new MODSEQ
func (m *gormMessageMapper) UpdateFlags(ctx context.Context, mailboxID uint, uid uint32, flags []string, modSeq uint64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message models.Message
		if err := tx.Where("mailbox_id = ? AND uid = ?", mailboxID, uid).First(&message).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to find message: %w", err)
		}

		if err := tx.Where("message_id = ?", message.ID).Delete(&models.MessageFlag{}).Error; err != nil {
			return fmt.Errorf("failed to clear flags: %w", err)
		}
		for _, name := range flags {
			flag := models.MessageFlag{MessageID: message.ID, Name: name}
			if err := tx.Create(&flag).Error; err != nil {
				return fmt.Errorf("failed to store flag %q: %w", name, err)
			}
		}

		if err := tx.Model(&models.Message{}).Where("id = ?", message.ID).
			Update("mod_seq", modSeq).Error; err != nil {
			return fmt.Errorf("failed to stamp modseq: %w", err)
		}
		return nil
	})
}

// DeleteFlagged removes every message carrying \Deleted and returns them
func (m *gormMessageMapper) DeleteFlagged(ctx context.Context, mailboxID uint) ([]models.Message, error) {
	var removed []models.Message
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Preload("Flags").
			Where("mailbox_id = ? AND id IN (?)", mailboxID,
				tx.Model(&models.MessageFlag{}).Select("message_id").Where("name = ?", models.FlagDeleted),
			).
			Order("uid ASC").
			Find(&removed).Error; err != nil {
			return fmt.Errorf("failed to find deleted messages: %w", err)
		}
		if len(removed) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(removed))
		for _, msg := range removed {
			ids = append(ids, msg.ID)
		}
		if err := tx.Where("message_id IN ?", ids).Delete(&models.MessageFlag{}).Error; err != nil {
			return fmt.Errorf("failed to delete flags: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
