package codec

import "encoding/binary"

// layout 按底层库的二进制布局逐层读取长度字段。
// 底层解析信任这些字段分配内存，截断时还会无限递归，所以每个计数都要先落在剩余字节之内。
type layout struct {
	data []byte
	off  int
}

func (l *layout) count(limit int) (int, bool) {
	if len(l.data)-l.off < 8 {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(l.data[l.off:])
	l.off += 8
	if v > uint64(limit) {
		return 0, false
	}
	return int(v), true
}

func (l *layout) skip(n int) bool {
	if n < 0 || len(l.data)-l.off < n {
		return false
	}
	l.off += n
	return true
}

func (l *layout) done() bool { return l.off == len(l.data) }

// poly 单个多项式：行数，随后每行为长度加系数，行长必须等于环维数
func (l *layout) poly(degree, maxRows int) (int, bool) {
	rows, ok := l.count(maxRows)
	if !ok {
		return 0, false
	}
	for i := 0; i < rows; i++ {
		if n, ok := l.count(degree); !ok || n != degree || !l.skip(8*degree) {
			return 0, false
		}
	}
	return rows, true
}

// ciphertextLayout 元数据标志 | 元数据 | 多项式个数(2或3) | 各多项式，所有多项式层级一致
func ciphertextLayout(data []byte, metaSize, degree, maxLevel int) bool {
	l := &layout{data: data}
	if !l.skip(1) || data[0] != 1 || !l.skip(metaSize) {
		return false
	}
	polys, ok := l.count(3)
	if !ok || polys < 2 {
		return false
	}
	rows := -1
	for i := 0; i < polys; i++ {
		r, ok := l.poly(degree, maxLevel+1)
		if !ok || r == 0 || (rows >= 0 && r != rows) {
			return false
		}
		rows = r
	}
	return l.done()
}

// gadgetLayout 分解基 | 行数 | 每行：列数 | 每列：QP多项式个数 | 每个 Q、P 两部分
func gadgetLayout(data []byte, degree, levelsQ, levelsP int) bool {
	l := &layout{data: data}
	if !l.skip(8) {
		return false
	}
	limit := len(data) / 8
	rows, ok := l.count(limit)
	if !ok || rows == 0 {
		return false
	}
	for i := 0; i < rows; i++ {
		cols, ok := l.count(limit)
		if !ok {
			return false
		}
		for j := 0; j < cols; j++ {
			size, ok := l.count(2)
			if !ok {
				return false
			}
			for k := 0; k < size; k++ {
				if _, ok := l.poly(degree, levelsQ); !ok {
					return false
				}
				if _, ok := l.poly(degree, levelsP); !ok {
					return false
				}
			}
		}
	}
	return l.done()
}
