package shared

import "fmt"

// DefinitionLockKey builds the redis key guarding one compound definition
// while a scheduled firing runs.
func DefinitionLockKey(definitionID int64) string {
	return fmt.Sprintf("compound:definition:%d:lock", definitionID)
}
