package platform

import "runtime"

var currentGOOS = runtime.GOOS
