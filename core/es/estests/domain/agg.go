// Package domain holds small aggregates used by the es tests.
package domain

import (
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/es/assert"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	UserCreated     = "UserCreated"
	UserNameChanged = "UserNameChanged"

	PostPublished = "PostPublished"
	PostRetitled  = "PostRetitled"

	TeamFounded = "TeamFounded"
	MemberAdded = "MemberAdded"
)

// === User: switch dispatch, JSON snapshots ===

type User struct {
	es.AggregateRoot

	ID          string `json:"id"`
	Name        string `json:"name"`
	NameChanges int    `json:"name_changes"`
}

func NewUser(id, name string) (*User, error) {
	u := &User{}
	err := u.Checked(
		assert.All(assert.NotEmpty(id, "id"), assert.NotEmpty(name, "name")),
		func() error {
			return es.RecordThat(u, es.Occur(UserCreated, id, map[string]any{"id": id, "name": name}))
		},
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) AggregateID() string { return u.ID }

// Record records e unchecked.
func (u *User) Record(e es.AggregateChanged) error { return es.RecordThat(u, e) }

func (u *User) ChangeName(name string) error {
	return u.Checked(
		assert.All(assert.NotEmpty(name, "name"), assert.False(name == u.Name, "name changes")),
		func() error {
			return es.RecordThat(u, es.Occur(UserNameChanged, u.ID, map[string]any{"name": name}))
		},
	)
}

func (u *User) Apply(e es.AggregateChanged) error {
	switch e.MessageName() {
	case UserCreated:
		u.ID = e.PayloadString("id")
		u.Name = e.PayloadString("name")
	case UserNameChanged:
		u.Name = e.PayloadString("name")
		u.NameChanges++
	default:
		return es.MissingEventHandler(u, e)
	}
	return nil
}

// === Post: handler table dispatch, custom snapshots ===

type Post struct {
	es.AggregateRoot

	id       string
	title    string
	retitled int
}

type postState struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Retitled int    `json:"retitled"`
}

func PublishPost(id, title string) (*Post, error) {
	if id == "" || title == "" {
		return nil, errors.New("post needs id and title")
	}
	p := &Post{}
	return p, es.RecordThat(p, es.Occur(PostPublished, id, map[string]any{"title": title}))
}

func (p *Post) AggregateID() string { return p.id }
func (p *Post) Title() string       { return p.title }
func (p *Post) Retitled() int       { return p.retitled }

func (p *Post) Retitle(title string) error {
	return es.RecordThat(p, es.Occur(PostRetitled, p.id, map[string]any{"title": title}))
}

func (p *Post) Apply(e es.AggregateChanged) error {
	return es.EventHandlers{
		PostPublished: p.whenPostPublished,
		PostRetitled:  p.whenPostRetitled,
	}.Dispatch(p, e)
}

func (p *Post) whenPostPublished(e es.AggregateChanged) error {
	p.id = e.AggregateID()
	p.title = e.PayloadString("title")
	return nil
}

func (p *Post) whenPostRetitled(e es.AggregateChanged) error {
	p.title = e.PayloadString("title")
	p.retitled++
	return nil
}

func (p *Post) Snapshot() ([]byte, error) {
	return json.Marshal(postState{ID: p.id, Title: p.title, Retitled: p.retitled})
}

func (p *Post) RestoreSnapshot(data []byte) error {
	var s postState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.id, p.title, p.retitled = s.ID, s.Title, s.Retitled
	return nil
}

var _ es.Snapshottable = (*Post)(nil)

// === Team: provides its own logical type ===

type Team struct {
	es.AggregateRoot

	ID      string   `json:"id"`
	Members []string `json:"members"`
}

func FoundTeam(id string) (*Team, error) {
	t := &Team{}
	return t, es.RecordThat(t, es.Occur(TeamFounded, id, nil))
}

func (t *Team) AggregateID() string             { return t.ID }
func (t *Team) AggregateType() es.AggregateType { return es.NamedAggregateType[*Team]("team") }

func (t *Team) AddMember(name string) error {
	return es.RecordThat(t, es.Occur(MemberAdded, t.ID, map[string]any{"name": name}))
}

func (t *Team) Apply(e es.AggregateChanged) error {
	switch e.MessageName() {
	case TeamFounded:
		t.ID = e.AggregateID()
	case MemberAdded:
		t.Members = append(t.Members, e.PayloadString("name"))
	default:
		return es.MissingEventHandler(t, e)
	}
	return nil
}
