package processors

import (
	"context"
	"fmt"
)

// BlockProcessor обрабатывает сырой ответ источника целиком
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, input []byte) ([]byte, error)
}

// Chain выполняет процессоры последовательно, выход предыдущего
// становится входом следующего
type Chain struct {
	processors []BlockProcessor
}

// NewChain создает новую цепочку процессоров
func NewChain(processors ...BlockProcessor) *Chain {
	return &Chain{
		processors: processors,
	}
}

// ProcessBlock выполняет все процессоры в цепочке
func (c *Chain) ProcessBlock(ctx context.Context, input []byte) ([]byte, error) {
	result := input
	for i, proc := range c.processors {
		var err error
		result, err = proc.ProcessBlock(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("processor %d (%T) failed: %w", i, proc, err)
		}
	}
	return result, nil
}

// Add добавляет процессор в цепочку
func (c *Chain) Add(processor BlockProcessor) {
	c.processors = append(c.processors, processor)
}

// Len возвращает количество процессоров в цепочке
func (c *Chain) Len() int {
	return len(c.processors)
}
