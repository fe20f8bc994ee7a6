package repo

// On-disk layout under <repo>/.jjg/ (spec.md §6).
const (
	DirName          = ".jjg"
	fileGraph        = "graph.json"
	fileOplog        = "oplog.jsonl"
	fileBookmarks    = "bookmarks.json"
	fileTags         = "tags.json"
	fileWorkingCopy  = "working-copy.json"
	fileConflicts    = "conflicts.json"
	fileMergeDrivers = "merge-drivers.toml"
	fileConfig       = "config.yaml"
)
