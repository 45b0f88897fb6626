package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
	"github.com/mcoot/noughts/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
}

func TestStorageSuite(t *testing.T) {
	s := new(StorageSuite)
	s.NewStorage = func() storage.Storage { return New() }
	suite.Run(t, s)
}

func (s *StorageSuite) TestSavedUserIsCopied() {
	user := &model.User{ID: "u1", FullName: "Alice"}
	s.Require().NoError(s.Storage.SaveUser(s.Ctx, user))

	user.FullName = "Mallory"

	got, err := s.Storage.GetUser(s.Ctx, "u1")
	s.Require().NoError(err)
	s.Equal("Alice", got.FullName)
}

func (s *StorageSuite) TestUpdatedGameIsCopied() {
	game := model.NewGame("g1", "a", "b", s.Now)
	s.Require().NoError(s.Storage.CreateGame(s.Ctx, game))

	game.Board[0] = model.SymbolO

	got, err := s.Storage.GetGame(s.Ctx, "g1")
	s.Require().NoError(err)
	s.Equal(model.SymbolEmpty, got.Board[0])
}
