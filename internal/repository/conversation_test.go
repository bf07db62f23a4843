package repository

import (
	"context"
	"testing"
	"time"

	"vetcare/internal/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createTestUsers(t *testing.T, db *gorm.DB) (*models.User, *models.User) {
	t.Helper()
	owner := &models.User{Username: "owner1", Email: "owner1@example.com", Role: models.RolePetOwner}
	vet := &models.User{Username: "drsmith", Email: "drsmith@example.com", Role: models.RoleVeterinarian}
	db.Create(owner)
	db.Create(vet)
	return owner, vet
}

func createTestConversation(t *testing.T, db *gorm.DB, repo ConversationRepository, users ...*models.User) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{Status: models.ConversationActive}
	if err := repo.Create(context.Background(), conv); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	for _, u := range users {
		if err := repo.AddParticipant(context.Background(), conv.ID, u.ID); err != nil {
			t.Fatalf("Failed to add participant: %v", err)
		}
	}
	return conv
}

func TestConversationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	owner, vet := createTestUsers(t, db)

	t.Run("CreateAndGet", func(t *testing.T) {
		conv := createTestConversation(t, db, repo, owner, vet)

		fetched, err := repo.Get(ctx, conv.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.ConversationActive, fetched.Status)
		assert.Len(t, fetched.Participants, 2)
	})

	t.Run("AddParticipantIdempotent", func(t *testing.T) {
		conv := createTestConversation(t, db, repo, owner, vet)

		err := repo.AddParticipant(ctx, conv.ID, owner.ID)
		assert.NoError(t, err)

		fetched, err := repo.Get(ctx, conv.ID)
		assert.NoError(t, err)
		assert.Len(t, fetched.Participants, 2)
	})

	t.Run("FindActivePair", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewConversationRepository(db)
		owner, vet := createTestUsers(t, db)
		conv := createTestConversation(t, db, repo, owner, vet)

		found, err := repo.FindActivePair(ctx, owner.ID, vet.ID)
		assert.NoError(t, err)
		assert.Equal(t, conv.ID, found.ID)

		// Order of the pair does not matter
		found, err = repo.FindActivePair(ctx, vet.ID, owner.ID)
		assert.NoError(t, err)
		assert.Equal(t, conv.ID, found.ID)
	})

	t.Run("FindActivePairSkipsArchived", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewConversationRepository(db)
		owner, vet := createTestUsers(t, db)
		conv := createTestConversation(t, db, repo, owner, vet)

		err := repo.Archive(ctx, conv.ID)
		assert.NoError(t, err)

		_, err = repo.FindActivePair(ctx, owner.ID, vet.ID)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("TouchOnSendIncrementsOthers", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewConversationRepository(db)
		owner, vet := createTestUsers(t, db)
		conv := createTestConversation(t, db, repo, owner, vet)

		now := time.Now()
		err := repo.TouchOnSend(ctx, conv.ID, owner.ID, "Bella is doing well", now)
		assert.NoError(t, err)
		err = repo.TouchOnSend(ctx, conv.ID, owner.ID, "See you Thursday", now)
		assert.NoError(t, err)

		vetUnread, err := repo.UnreadCountFor(ctx, conv.ID, vet.ID)
		assert.NoError(t, err)
		assert.Equal(t, 2, vetUnread)

		ownerUnread, err := repo.UnreadCountFor(ctx, conv.ID, owner.ID)
		assert.NoError(t, err)
		assert.Equal(t, 0, ownerUnread)

		fetched, err := repo.Get(ctx, conv.ID)
		assert.NoError(t, err)
		assert.Equal(t, "See you Thursday", fetched.LastMessage)
		assert.NotNil(t, fetched.LastMessageTime)
	})

	t.Run("ResetUnread", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewConversationRepository(db)
		owner, vet := createTestUsers(t, db)
		conv := createTestConversation(t, db, repo, owner, vet)

		err := repo.TouchOnSend(ctx, conv.ID, owner.ID, "hello", time.Now())
		assert.NoError(t, err)

		err = repo.ResetUnread(ctx, conv.ID, vet.ID)
		assert.NoError(t, err)

		unread, err := repo.UnreadCountFor(ctx, conv.ID, vet.ID)
		assert.NoError(t, err)
		assert.Equal(t, 0, unread)
	})

	t.Run("ListForUserExcludesArchived", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewConversationRepository(db)
		owner, vet := createTestUsers(t, db)
		active := createTestConversation(t, db, repo, owner, vet)

		staff := &models.User{Username: "frontdesk", Email: "desk@example.com", Role: models.RoleStaff}
		db.Create(staff)
		archived := createTestConversation(t, db, repo, owner, staff)
		assert.NoError(t, repo.Archive(ctx, archived.ID))

		convs, err := repo.ListForUser(ctx, owner.ID)
		assert.NoError(t, err)
		assert.Len(t, convs, 1)
		assert.Equal(t, active.ID, convs[0].ID)
	})

	t.Run("ListForUserOrdersByActivity", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewConversationRepository(db)
		owner, vet := createTestUsers(t, db)
		staff := &models.User{Username: "frontdesk2", Email: "desk2@example.com", Role: models.RoleStaff}
		db.Create(staff)

		older := createTestConversation(t, db, repo, owner, vet)
		newer := createTestConversation(t, db, repo, owner, staff)

		assert.NoError(t, repo.TouchOnSend(ctx, older.ID, vet.ID, "first", time.Now().Add(-time.Hour)))
		assert.NoError(t, repo.TouchOnSend(ctx, newer.ID, staff.ID, "second", time.Now()))

		convs, err := repo.ListForUser(ctx, owner.ID)
		assert.NoError(t, err)
		assert.Len(t, convs, 2)
		assert.Equal(t, newer.ID, convs[0].ID)
		assert.Equal(t, older.ID, convs[1].ID)
	})

	t.Run("ListForUserCarriesUnread", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewConversationRepository(db)
		owner, vet := createTestUsers(t, db)
		conv := createTestConversation(t, db, repo, owner, vet)

		assert.NoError(t, repo.TouchOnSend(ctx, conv.ID, vet.ID, "reminder", time.Now()))

		convs, err := repo.ListForUser(ctx, owner.ID)
		assert.NoError(t, err)
		assert.Len(t, convs, 1)
		assert.Equal(t, 1, convs[0].UnreadCount)
	})
}
