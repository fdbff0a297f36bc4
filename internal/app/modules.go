package app

import (
	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/modules/codereview"
)

// coreModules is the definitive list of all capability modules that are
// compiled into the flowgridgo binary.
var coreModules = []capability.Module{
	&codereview.Module{},
}
