package main

import "tools.zach/dev/sekaibake/internal/paths"

// DataPaths aliases [paths.DataDir] into the main package.
type DataPaths = paths.DataDir
