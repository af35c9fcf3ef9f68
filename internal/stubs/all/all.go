// Package all imports all stub packages to ensure they register via init().
// Import this package in session setup to enable all stubs.
//
// Example:
//
//	import _ "github.com/JohnDoe6345789/winejs/internal/stubs/all"
package all

import (
	// Import all stub packages for side effects (init registration)
	_ "github.com/JohnDoe6345789/winejs/internal/stubs/directx"
	_ "github.com/JohnDoe6345789/winejs/internal/stubs/kernel32"
	_ "github.com/JohnDoe6345789/winejs/internal/stubs/msvcrt"
	_ "github.com/JohnDoe6345789/winejs/internal/stubs/user32"
	_ "github.com/JohnDoe6345789/winejs/internal/stubs/winsock"
)
