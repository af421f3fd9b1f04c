package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// StringSet 以 JSON 存储的字符串集合（技能、脆弱性标签）
type StringSet []string

func (s StringSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSet) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSet", src)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, s)
}

// Contains 判断集合是否包含指定元素
func (s StringSet) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// Overlap 返回与另一集合的交集元素数
func (s StringSet) Overlap(other StringSet) int {
	n := 0
	for _, item := range s {
		if other.Contains(item) {
			n++
		}
	}
	return n
}

// Migrate 建表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&LocationPing{},
		&Emergency{},
		&CaseGroup{},
		&Case{},
		&Assignment{},
		&Update{},
		&AgentMessage{},
	)
}
