package api

import (
	"context"

	log "github.com/sirupsen/logrus"

	"gumboard-api/domain"
)

// NoteService runs note and checklist mutations.
type NoteService interface {
	UpdateNote(ctx context.Context, actorID, boardID, noteID string, in domain.UpdateNoteInput) (*domain.Note, domain.ChangeSet, error)
	CreateNote(ctx context.Context, actorID, boardID string, in domain.CreateNoteInput) (*domain.Note, error)
	SplitItem(ctx context.Context, actorID, boardID, noteID, itemID string, cursor int) (*domain.Note, domain.SplitResult, error)
	ApplyTaskCommand(ctx context.Context, actorID, boardID, noteID string, cmd domain.TaskCommand) (*domain.Note, error)
}

// NoteReader serves note reads.
type NoteReader interface {
	GetNote(ctx context.Context, boardID, noteID string) (*domain.Note, error)
}

// Authenticator is implemented by types able to resolve the actor from headers.
type Authenticator interface {
	ActorFromAuthHeader(string) (domain.User, error)
}

// UserRecorder keeps actor profiles in sync with token claims.
type UserRecorder interface {
	EnsureUser(ctx context.Context, u domain.User) error
}

// Pinger reports backend health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps bundles what the handlers need. Users and Health are optional.
type Deps struct {
	Service NoteService
	Notes   NoteReader
	Auth    Authenticator
	Users   UserRecorder
	Health  Pinger
	Logger  *log.Logger
}
