package cursor

import "github.com/go-vgo/robotgo"

// RobotMouse moves the real pointer through robotgo.
type RobotMouse struct{}

// ScreenSize returns the main display size in pixels.
func (RobotMouse) ScreenSize() (int, int) {
	return robotgo.GetScreenSize()
}

// Move places the pointer at (x, y).
func (RobotMouse) Move(x, y int) {
	robotgo.Move(x, y)
}

// Click presses and releases the left button.
func (RobotMouse) Click() {
	robotgo.Click("left")
}
