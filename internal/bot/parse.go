package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"newsnow_bot/internal/schedule"
)

// DefaultSource is used when /news is called without a source.
const DefaultSource = "zhihu"

// ParseSourceArg returns the first argument, or DefaultSource.
func ParseSourceArg(args string) string {
	if f := strings.Fields(args); len(f) > 0 {
		return f[0]
	}
	return DefaultSource
}

// ScheduleArgs holds the parsed arguments of /schedule_add.
type ScheduleArgs struct {
	TimeOfDay string
	Source    string
}

// ParseScheduleArgs parses "HH:MM [source]".
func ParseScheduleArgs(args string) (ScheduleArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 2 {
		return ScheduleArgs{}, errors.New("用法: /schedule_add HH:MM [source]")
	}
	tod, err := schedule.ParseTimeOfDay(parts[0])
	if err != nil {
		return ScheduleArgs{}, fmt.Errorf("时间格式错误: %s，应为 HH:MM (00:00-23:59)", parts[0])
	}
	source := DefaultSource
	if len(parts) == 2 {
		source = parts[1]
	}
	if strings.ContainsRune(source, '#') {
		return ScheduleArgs{}, fmt.Errorf("数据源 %s 不能包含 '#'", source)
	}
	return ScheduleArgs{TimeOfDay: tod, Source: source}, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, errors.New("缺少定时推送 ID")
	}
	s = strings.TrimPrefix(strings.Fields(s)[0], "#")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("无效的定时推送 ID: %s", s)
	}
	return id, nil
}
