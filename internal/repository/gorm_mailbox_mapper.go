package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/webrana-mailstore/internal/models"
	"gorm.io/gorm"
)

// gormMailboxMapper implements MailboxMapper using GORM
type gormMailboxMapper struct {
	db        *gorm.DB
	sessionID string
}

// Create stores a new mailbox
func (m *gormMailboxMapper) Create(ctx context.Context, mailbox *models.Mailbox) error {
	result := m.db.WithContext(ctx).Create(mailbox)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("mailbox %q already exists: %w", mailbox.Path().String(), ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create mailbox: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a mailbox by ID with its ACL preloaded
func (m *gormMailboxMapper) GetByID(ctx context.Context, id uint) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	result := m.db.WithContext(ctx).Preload("ACL").First(&mailbox, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox by ID: %w", result.Error)
	}
	return &mailbox, nil
}

// GetByPath retrieves a mailbox by its path tuple with its ACL preloaded
func (m *gormMailboxMapper) GetByPath(ctx context.Context, path models.MailboxPath) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	result := m.db.WithContext(ctx).
		Preload("ACL").
		Where("namespace = ? AND owner = ? AND name = ?", path.Namespace, path.User, path.Name).
		First(&mailbox)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox by path: %w", result.Error)
	}
	return &mailbox, nil
}

// List returns every mailbox with its ACL preloaded
func (m *gormMailboxMapper) List(ctx context.Context) ([]models.Mailbox, error) {
	var mailboxes []models.Mailbox
	result := m.db.WithContext(ctx).Preload("ACL").Order("id ASC").Find(&mailboxes)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", result.Error)
	}
	return mailboxes, nil
}

// Rename moves the mailbox to a new path, leaving counters and messages alone
func (m *gormMailboxMapper) Rename(ctx context.Context, id uint, newPath models.MailboxPath) error {
	result := m.db.WithContext(ctx).Model(&models.Mailbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"namespace": newPath.Namespace,
		"owner":     newPath.User,
		"name":      newPath.Name,
	})
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("mailbox %q already exists: %w", newPath.String(), ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to rename mailbox: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the mailbox, cascading to its messages, flags and ACL.
// The cascade is explicit so the contract holds even when the engine was
// opened without foreign-key enforcement.
func (m *gormMailboxMapper) Delete(ctx context.Context, id uint) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id IN (?)",
			tx.Model(&models.Message{}).Select("id").Where("mailbox_id = ?", id),
		).Delete(&models.MessageFlag{}).Error; err != nil {
			return fmt.Errorf("failed to delete message flags: %w", err)
		}
		if err := tx.Where("mailbox_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.Where("mailbox_id = ?", id).Delete(&models.ACLEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete ACL entries: %w", err)
		}
		result := tx.Delete(&models.Mailbox{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete mailbox: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetACL returns a snapshot of the mailbox's ACL entries
func (m *gormMailboxMapper) GetACL(ctx context.Context, mailboxID uint) ([]models.ACLEntry, error) {
	var count int64
	if err := m.db.WithContext(ctx).Model(&models.Mailbox{}).Where("id = ?", mailboxID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check mailbox: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}

	var entries []models.ACLEntry
	result := m.db.WithContext(ctx).Where("mailbox_id = ?", mailboxID).Order("id ASC").Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get ACL: %w", result.Error)
	}
	return entries, nil
}

// SetACLEntry upserts the entry for one identifier
func (m *gormMailboxMapper) SetACLEntry(ctx context.Context, mailboxID uint, identifier, rights string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rights == "" {
			if err := tx.Where("mailbox_id = ? AND identifier = ?", mailboxID, identifier).
				Delete(&models.ACLEntry{}).Error; err != nil {
				return fmt.Errorf("failed to remove ACL entry: %w", err)
			}
			return nil
		}

		result := tx.Model(&models.ACLEntry{}).
			Where("mailbox_id = ? AND identifier = ?", mailboxID, identifier).
			Update("rights", rights)
		if result.Error != nil {
			return fmt.Errorf("failed to update ACL entry: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		entry := models.ACLEntry{MailboxID: mailboxID, Identifier: identifier, Rights: rights}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to create ACL entry: %w", err)
		}
		return nil
	})
}

// AllocateUIDs atomically reserves n consecutive UIDs and MODSEQs. The
// counter move is a single UPDATE so concurrent allocations on the same
// row serialize inside the engine.
func (m *gormMailboxMapper) AllocateUIDs(ctx context.Context, mailboxID uint, n int) (uint32, uint64, error) {
	var mailbox models.Mailbox
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Mailbox{}).Where("id = ?", mailboxID).Updates(map[string]interface{}{
			"uid_next":     gorm.Expr("uid_next + ?", n),
			"next_mod_seq": gorm.Expr("next_mod_seq + ?", n),
		})
		if result.Error != nil {
			return fmt.Errorf("failed to advance counters: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Select("uid_next", "next_mod_seq").First(&mailbox, mailboxID).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return mailbox.UIDNext - uint32(n), mailbox.NextModSeq - uint64(n), nil
}

// AllocateModSeqs atomically reserves n consecutive MODSEQs
func (m *gormMailboxMapper) AllocateModSeqs(ctx context.Context, mailboxID uint, n int) (uint64, error) {
	var mailbox models.Mailbox
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Mailbox{}).Where("id = ?", mailboxID).
			Update("next_mod_seq", gorm.Expr("next_mod_seq + ?", n))
		if result.Error != nil {
			return fmt.Errorf("failed to advance modseq counter: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Select("next_mod_seq").First(&mailbox, mailboxID).Error
	})
	if err != nil {
		return 0, err
	}
	return mailbox.NextModSeq - uint64(n), nil
}
