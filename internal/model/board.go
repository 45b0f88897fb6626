package model

// BoardCells is the number of cells on the board
const BoardCells = 9

// Symbol is the mark placed in a cell
type Symbol string

const (
	SymbolEmpty Symbol = ""
	SymbolX     Symbol = "X"
	SymbolO     Symbol = "O"
)

// Other returns the opposing symbol
func (s Symbol) Other() Symbol {
	switch s {
	case SymbolX:
		return SymbolO
	case SymbolO:
		return SymbolX
	default:
		return SymbolEmpty
	}
}

// Board is a 3x3 grid stored row-major, positions 0-8
type Board [BoardCells]Symbol

// Lines are the eight winning triples
var Lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// IsValidPosition returns true if the position is on the board
func IsValidPosition(pos int) bool {
	return pos >= 0 && pos < BoardCells
}

// IsEmpty returns true if the cell at pos is empty
func (b *Board) IsEmpty(pos int) bool {
	return IsValidPosition(pos) && b[pos] == SymbolEmpty
}

// IsFull returns true if no cell is empty
func (b *Board) IsFull() bool {
	for _, s := range b {
		if s == SymbolEmpty {
			return false
		}
	}
	return true
}

// EmptyCount returns the number of empty cells
func (b *Board) EmptyCount() int {
	count := 0
	for _, s := range b {
		if s == SymbolEmpty {
			count++
		}
	}
	return count
}

// WinningLine returns the first completed line, if any
func (b *Board) WinningLine() ([3]int, bool) {
	for _, line := range Lines {
		s := b[line[0]]
		if s != SymbolEmpty && s == b[line[1]] && s == b[line[2]] {
			return line, true
		}
	}
	return [3]int{}, false
}
