package board

import (
	"github.com/mcoot/noughts/internal/model"
)

// Outcome is the result of evaluating a board after a placement
type Outcome struct {
	Finished bool
	Winner   model.Symbol // SymbolEmpty on a draw or unfinished board
	Line     [3]int       // the completed line when Winner is set
}

// IsDraw returns true if the board is full with no winner
func (o Outcome) IsDraw() bool {
	return o.Finished && o.Winner == model.SymbolEmpty
}

// Service applies tic-tac-toe placement and win rules to a board
type Service struct{}

// New creates a new BoardService
func New() *Service {
	return &Service{}
}

// ValidatePlacement checks that a position is on the board and empty
func (s *Service) ValidatePlacement(board *model.Board, pos int) error {
	if !model.IsValidPosition(pos) {
		return model.ErrInvalidPosition
	}
	if !board.IsEmpty(pos) {
		return model.ErrInvalidPosition
	}
	return nil
}

// Place validates and writes a symbol into the board
func (s *Service) Place(board *model.Board, symbol model.Symbol, pos int) error {
	if err := s.ValidatePlacement(board, pos); err != nil {
		return err
	}
	board[pos] = symbol
	return nil
}

// Evaluate checks the eight lines for a winner, then the board for a draw
func (s *Service) Evaluate(board *model.Board) Outcome {
	if line, ok := board.WinningLine(); ok {
		return Outcome{Finished: true, Winner: board[line[0]], Line: line}
	}
	if board.IsFull() {
		return Outcome{Finished: true}
	}
	return Outcome{}
}
