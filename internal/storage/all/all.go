// Package all registers every built-in storage backend with the storage
// package. Import it for side effects:
//
//	import _ "github.com/JonMunkholm/importer/internal/storage/all"
package all

import (
	_ "github.com/JonMunkholm/importer/internal/storage/memory"
	_ "github.com/JonMunkholm/importer/internal/storage/postgres"
	_ "github.com/JonMunkholm/importer/internal/storage/sqlite"
)
