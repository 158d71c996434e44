package ringbuf

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Capacity, buffered, free and cursor as one table row
func (g *Guarded) GetStatString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%v\t%v\t%v\t%v\t%v\n",
		humanize.IBytes(uint64(g.rb.Capacity())), g.rb.DataSize(), g.rb.FreeSize(), g.rb.Cursor(), g.getStateString())
}

/**************************** helper funcs ****************************/

// The buffer should be locked on entry.
func (g *Guarded) getStateString() string {
	switch {
	case g.rb.buff == nil:
		return "destroyed"
	case g.closed:
		return "closed"
	case g.rb.IsFull():
		return "full"
	case g.rb.IsEmpty():
		return "empty"
	}
	return "open"
}
