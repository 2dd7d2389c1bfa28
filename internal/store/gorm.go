package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourorg/mailharvest/internal/provider"
)

// GormStore implements the Store interface on top of GORM.
type GormStore struct {
	db *gorm.DB
}

type accountEntity struct {
	ID          int64  `gorm:"primaryKey"`
	Email       string `gorm:"size:255;uniqueIndex"`
	ServiceType string `gorm:"size:32"`
	Credentials []byte `gorm:"type:text"`
	Token       []byte `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (accountEntity) TableName() string { return "accounts" }

type messageEntity struct {
	ID           int64  `gorm:"primaryKey"`
	AccountID    int64  `gorm:"index;uniqueIndex:idx_messages_account_external"`
	ExternalID   string `gorm:"size:255;uniqueIndex:idx_messages_account_external"`
	ThreadID     string `gorm:"size:255"`
	Snippet      string `gorm:"type:text"`
	InternalDate string `gorm:"size:255"`
	LabelIDs     string `gorm:"column:label_ids;type:text"` // JSON serialized label set
	HistoryID    string `gorm:"size:255"`
	Subject      string `gorm:"size:255"`
	Sender       string `gorm:"size:255;index"`
	Recipient    string `gorm:"size:255"`
	Copy         string `gorm:"type:text"`
	Body         string `gorm:"type:text"`
	SenderID     *int64 `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (messageEntity) TableName() string { return "messages" }

type senderEntity struct {
	ID        int64  `gorm:"primaryKey"`
	AccountID int64  `gorm:"index"`
	Name      string `gorm:"size:255"`
	Email     string `gorm:"size:255;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (senderEntity) TableName() string { return "senders" }

// NewGormStore migrates the schema and returns a GORM-backed store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if err := db.AutoMigrate(&accountEntity{}, &messageEntity{}, &senderEntity{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateAccount(ctx context.Context, a *Account) error {
	if a == nil {
		return errors.New("account cannot be nil")
	}
	ent := accountToEntity(a)
	if err := s.db.WithContext(ctx).Create(ent).Error; err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	a.ID = ent.ID
	return nil
}

func (s *GormStore) UpdateAccount(ctx context.Context, a *Account) error {
	if a == nil || a.ID == 0 {
		return errors.New("account must have an ID")
	}
	// Updates scoped to the content columns so created_at is left alone.
	err := s.db.WithContext(ctx).Model(&accountEntity{ID: a.ID}).
		Select("email", "service_type", "credentials", "token").
		Updates(accountToEntity(a)).Error
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (s *GormStore) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	var ent accountEntity
	err := s.db.WithContext(ctx).First(&ent, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return entityToAccount(&ent), nil
}

func (s *GormStore) SaveToken(ctx context.Context, accountID int64, token json.RawMessage) error {
	res := s.db.WithContext(ctx).Model(&accountEntity{}).
		Where("id = ?", accountID).
		Update("token", []byte(token))
	if res.Error != nil {
		return fmt.Errorf("save token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) DeleteAccount(ctx context.Context, accountID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&messageEntity{}, "account_id = ?", accountID).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Delete(&senderEntity{}, "account_id = ?", accountID).Error; err != nil {
			return fmt.Errorf("delete senders: %w", err)
		}
		if err := tx.Delete(&accountEntity{}, "id = ?", accountID).Error; err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}

func (s *GormStore) CreateStubs(ctx context.Context, msgs []*Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	entities := make([]messageEntity, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		ent, err := messageToEntity(m)
		if err != nil {
			return 0, err
		}
		entities = append(entities, *ent)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entities)
	if res.Error != nil {
		return 0, fmt.Errorf("create stubs: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) MessageByExternalID(ctx context.Context, accountID int64, externalID string) (*Message, error) {
	var ent messageEntity
	err := s.db.WithContext(ctx).
		First(&ent, "account_id = ? AND external_id = ?", accountID, externalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return entityToMessage(&ent)
}

func (s *GormStore) UpdateMessage(ctx context.Context, m *Message) error {
	if m == nil || m.ID == 0 {
		return errors.New("message must have an ID")
	}
	ent, err := messageToEntity(m)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&messageEntity{ID: m.ID}).
		Select("thread_id", "snippet", "internal_date", "label_ids", "history_id",
			"subject", "sender", "recipient", "copy", "body", "sender_id").
		Updates(ent).Error
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *GormStore) UnfilledMessages(ctx context.Context, accountID int64) ([]*Message, error) {
	return s.messagesWhere(ctx, "account_id = ? AND body = ''", accountID)
}

func (s *GormStore) MessagesMissingSubject(ctx context.Context, accountID int64) ([]*Message, error) {
	return s.messagesWhere(ctx, "account_id = ? AND subject = ''", accountID)
}

func (s *GormStore) messagesWhere(ctx context.Context, cond string, args ...any) ([]*Message, error) {
	var entities []messageEntity
	if err := s.db.WithContext(ctx).Where(cond, args...).Order("id").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	msgs := make([]*Message, 0, len(entities))
	for i := range entities {
		m, err := entityToMessage(&entities[i])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *GormStore) DistinctSenders(ctx context.Context, accountID int64) ([]string, error) {
	var senders []string
	err := s.db.WithContext(ctx).Model(&messageEntity{}).
		Where("account_id = ?", accountID).
		Distinct("sender").
		Order("sender").
		Pluck("sender", &senders).Error
	if err != nil {
		return nil, fmt.Errorf("distinct senders: %w", err)
	}
	return senders, nil
}

func (s *GormStore) CreateSenders(ctx context.Context, senders []*Sender) error {
	if len(senders) == 0 {
		return nil
	}
	entities := make([]senderEntity, 0, len(senders))
	for _, sd := range senders {
		entities = append(entities, senderEntity{
			AccountID: sd.AccountID,
			Name:      sd.Name,
			Email:     sd.Email,
		})
	}
	if err := s.db.WithContext(ctx).Create(&entities).Error; err != nil {
		return fmt.Errorf("create senders: %w", err)
	}
	for i := range entities {
		senders[i].ID = entities[i].ID
	}
	return nil
}

func (s *GormStore) LinkSender(ctx context.Context, accountID, senderID int64, rawSender string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&messageEntity{}).
		Where("account_id = ? AND sender = ?", accountID, rawSender).
		Update("sender_id", senderID)
	if res.Error != nil {
		return 0, fmt.Errorf("link sender: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) TopSenders(ctx context.Context, accountID int64, limit int) ([]*Sender, error) {
	if limit <= 0 {
		limit = 10
	}
	type row struct {
		ID           int64
		AccountID    int64
		Name         string
		Email        string
		MessageCount int
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&senderEntity{}).
		Select("senders.id, senders.account_id, senders.name, senders.email, COUNT(messages.id) AS message_count").
		Joins("LEFT JOIN messages ON messages.sender_id = senders.id").
		Where("senders.account_id = ?", accountID).
		Group("senders.id").
		Order("message_count DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top senders: %w", err)
	}
	out := make([]*Sender, 0, len(rows))
	for _, r := range rows {
		out = append(out, &Sender{
			ID:           r.ID,
			AccountID:    r.AccountID,
			Name:         r.Name,
			Email:        r.Email,
			MessageCount: r.MessageCount,
		})
	}
	return out, nil
}

func accountToEntity(a *Account) *accountEntity {
	return &accountEntity{
		ID:          a.ID,
		Email:       a.Email,
		ServiceType: string(a.ServiceType),
		Credentials: []byte(a.Credentials),
		Token:       []byte(a.Token),
	}
}

func entityToAccount(ent *accountEntity) *Account {
	return &Account{
		ID:          ent.ID,
		Email:       ent.Email,
		ServiceType: provider.ServiceType(ent.ServiceType),
		Credentials: json.RawMessage(ent.Credentials),
		Token:       json.RawMessage(ent.Token),
	}
}

func messageToEntity(m *Message) (*messageEntity, error) {
	labels := "[]"
	if m.LabelIDs != nil {
		data, err := json.Marshal(m.LabelIDs)
		if err != nil {
			return nil, fmt.Errorf("marshal label ids: %w", err)
		}
		labels = string(data)
	}
	return &messageEntity{
		ID:           m.ID,
		AccountID:    m.AccountID,
		ExternalID:   m.ExternalID,
		ThreadID:     m.ThreadID,
		Snippet:      m.Snippet,
		InternalDate: m.InternalDate,
		LabelIDs:     labels,
		HistoryID:    m.HistoryID,
		Subject:      m.Subject,
		Sender:       m.Sender,
		Recipient:    m.Recipient,
		Copy:         m.Copy,
		Body:         m.Body,
		SenderID:     m.SenderID,
	}, nil
}

func entityToMessage(ent *messageEntity) (*Message, error) {
	m := &Message{
		ID:           ent.ID,
		AccountID:    ent.AccountID,
		ExternalID:   ent.ExternalID,
		ThreadID:     ent.ThreadID,
		Snippet:      ent.Snippet,
		InternalDate: ent.InternalDate,
		HistoryID:    ent.HistoryID,
		Subject:      ent.Subject,
		Sender:       ent.Sender,
		Recipient:    ent.Recipient,
		Copy:         ent.Copy,
		Body:         ent.Body,
		SenderID:     ent.SenderID,
	}
	if ent.LabelIDs != "" {
		if err := json.Unmarshal([]byte(ent.LabelIDs), &m.LabelIDs); err != nil {
			return nil, fmt.Errorf("unmarshal label ids: %w", err)
		}
	}
	return m, nil
}
