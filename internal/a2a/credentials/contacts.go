package credentials

import (
	"fmt"
	"time"

	"github.com/KafClaw/KafClaw/internal/a2a/cryptoutil"
)

// AddContactOptions configures AddContact.
type AddContactOptions struct {
	Name   string
	Owner  string
	Tags   []string
	Fields map[string]string
	IsMine bool
}

// AddContact parses an invite URL and adds an outbound contact, refusing
// duplicates by (host, token_hash).
func (s *Store) AddContact(invite string, opts AddContactOptions) (*Contact, error) {
	host, token, err := ParseInviteURL(invite)
	if err != nil {
		return nil, err
	}
	hash := cryptoutil.HashToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.doc.Contacts {
		if c.Host == host && c.TokenHash == hash {
			return nil, fmt.Errorf("contact already exists for host %s", host)
		}
	}

	id, err := cryptoutil.NewID("contact_")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	contact := &Contact{
		ID:              id,
		Name:            opts.Name,
		Owner:           opts.Owner,
		Host:            host,
		TokenHash:       hash,
		TokenCiphertext: cryptoutil.EncryptTokenAtRest(s.path, token),
		Tags:            append([]string(nil), opts.Tags...),
		Fields:          copyFields(opts.Fields),
		Status:          ContactUnknown,
		IsMine:          opts.IsMine,
		AddedAt:         now,
		UpdatedAt:       now,
	}
	s.doc.Contacts[contact.ID] = contact
	if err := s.persist(); err != nil {
		delete(s.doc.Contacts, contact.ID)
		return nil, err
	}
	return contact, nil
}

// EnsureInboundContact creates or touches a placeholder contact for an
// inbound caller when no outbound contact row already exists for this
// token. Inbound placeholders use host="inbound" and store no token.
func (s *Store) EnsureInboundContact(callerName string, tokenID string) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.doc.Contacts {
		if c.LinkedTokenID == tokenID && c.Host != "inbound" {
			return c, nil
		}
	}

	for _, c := range s.doc.Contacts {
		if c.LinkedTokenID == tokenID && c.Host == "inbound" {
			c.UpdatedAt = time.Now()
			now := time.Now()
			c.LastSeen = &now
			if callerName != "" {
				c.Name = callerName
			}
			if err := s.persist(); err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	id, err := cryptoutil.NewID("contact_")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	contact := &Contact{
		ID:            id,
		Name:          callerName,
		Host:          "inbound",
		Tags:          []string{"inbound"},
		Fields:        map[string]string{},
		LinkedTokenID: tokenID,
		Status:        ContactOnline,
		LastSeen:      &now,
		AddedAt:       now,
		UpdatedAt:     now,
	}
	s.doc.Contacts[contact.ID] = contact
	if err := s.persist(); err != nil {
		delete(s.doc.Contacts, contact.ID)
		return nil, err
	}
	return contact, nil
}

// LinkTokenToContact records which token this owner issued to a contact.
func (s *Store) LinkTokenToContact(contactID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.doc.Contacts[contactID]
	if !ok {
		return fmt.Errorf("contact %s not found", contactID)
	}
	c.LinkedTokenID = tokenID
	c.UpdatedAt = time.Now()
	return s.persist()
}

// UpdateContact applies a partial update (non-empty fields only).
func (s *Store) UpdateContact(contactID string, name string, tags []string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.doc.Contacts[contactID]
	if !ok {
		return fmt.Errorf("contact %s not found", contactID)
	}
	if name != "" {
		c.Name = name
	}
	if tags != nil {
		c.Tags = append([]string(nil), tags...)
	}
	if fields != nil {
		c.Fields = copyFields(fields)
	}
	c.UpdatedAt = time.Now()
	return s.persist()
}

// UpdateContactStatus records the latest observed reachability.
func (s *Store) UpdateContactStatus(contactID string, status ContactStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.doc.Contacts[contactID]
	if !ok {
		return fmt.Errorf("contact %s not found", contactID)
	}
	c.Status = status
	c.LastError = lastError
	now := time.Now()
	c.LastSeen = &now
	c.UpdatedAt = now
	return s.persist()
}

// RemoveContact deletes a contact by id.
func (s *Store) RemoveContact(contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Contacts[contactID]; !ok {
		return fmt.Errorf("contact %s not found", contactID)
	}
	delete(s.doc.Contacts, contactID)
	return s.persist()
}

// ListContacts returns every known contact.
func (s *Store) ListContacts() []*Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Contact, 0, len(s.doc.Contacts))
	for _, c := range s.doc.Contacts {
		out = append(out, c)
	}
	return out
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
