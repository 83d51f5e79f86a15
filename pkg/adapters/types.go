package adapters

import "fmt"

// StagingPrefix - префикс имен таблиц в режиме проверки входных данных
const StagingPrefix = "staging_"

// Outcome - результат вызова upsert через Wrapper
type Outcome int

const (
	// OutcomeWritten - запись передана хранилищу
	OutcomeWritten Outcome = iota

	// OutcomeSkippedWindow - дата вне скользящего окна, хранилище не вызывалось
	OutcomeSkippedWindow

	// OutcomeFailed - запись не сохранена, ошибка возвращается вместе с ним
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeSkippedWindow:
		return "skipped_window"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// WrapperConfig - политика Wrapper
type WrapperConfig struct {
	// SlidingWindowDays - принимать только записи не старше N дней.
	// 0 отключает окно.
	SlidingWindowDays int `yaml:"sliding_window_days"`

	// Staging - писать в staging_ таблицы (режим проверки входных данных)
	Staging bool `yaml:"staging"`
}

// Capabilities - набор опциональных возможностей бэкенда
type Capabilities struct {
	Compare         bool `json:"compare"`
	SendData        bool `json:"send_data"`
	TruncateStaging bool `json:"truncate_staging"`
	Flush           bool `json:"flush"`
}

func (c Capabilities) String() string {
	return fmt.Sprintf("compare=%t send_data=%t truncate_staging=%t flush=%t",
		c.Compare, c.SendData, c.TruncateStaging, c.Flush)
}
