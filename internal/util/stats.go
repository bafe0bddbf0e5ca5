package util

import "math"

// Clamp01 把数值裁剪到 [0,1]。
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Pearson 计算两组等长序列的皮尔逊相关系数。
// 长度不足 2 或任一序列方差为 0 时返回 0。
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// CorrelationConfidence 给出相关系数的置信度估计（0-1）。
// 非参数化的占位启发式：|r| 越大、样本量越大越可信；
// 样本量按 30 渐进饱和。
func CorrelationConfidence(r float64, sampleSize int) float64 {
	if sampleSize < 2 {
		return 0
	}
	sampleFactor := float64(sampleSize) / 30.0
	if sampleFactor > 1 {
		sampleFactor = 1
	}
	return Clamp01(math.Abs(r) * (0.5 + 0.5*sampleFactor))
}

// LinearTrendSlope 对序列做最小二乘拟合，返回斜率。
// x 取 0..n-1；少于 2 个点返回 0。
func LinearTrendSlope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}

// Mean 返回均值，空序列返回 0。
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// StdDev 返回总体标准差，长度不足 2 返回 0。
func StdDev(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	m := Mean(vs)
	var sum float64
	for _, v := range vs {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vs)))
}
