package classifier

import "math"

// Point 归一化二维坐标
type Point struct {
	X float64
	Y float64
}

// Midpoint 两点中点
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// CalculateAngle 计算 A-B-C 在 B 点的夹角（度，0-180）
// angle = |atan2(Cy−By, Cx−Bx) − atan2(Ay−By, Ax−Bx)|，超过 180 时取 360 − angle
func CalculateAngle(a, b, c Point) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(radians * 180.0 / math.Pi)
	if angle > 180.0 {
		angle = 360 - angle
	}
	return angle
}
