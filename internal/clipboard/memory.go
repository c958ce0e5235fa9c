package clipboard

import "sync"

// Memory is an in-process clipboard used in place of the system one in tests.
type Memory struct {
	mu       sync.Mutex
	content  string
	readErr  error
	writeErr error
	reads    int
	writes   int
}

func NewMemory(initial string) *Memory {
	return &Memory{content: initial}
}

func (c *Memory) ReadAll() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.readErr != nil {
		return "", c.readErr
	}
	return c.content, nil
}

func (c *Memory) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.content = text
	c.writes++
	return nil
}

// FailReads makes subsequent reads return err. A nil err clears it.
func (c *Memory) FailReads(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// FailWrites makes subsequent writes return err. A nil err clears it.
func (c *Memory) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *Memory) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

func (c *Memory) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *Memory) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}
