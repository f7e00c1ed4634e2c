package ticket

// Book 客户端票据簿（不参与承诺）
//
// 记录当前累加器中的票据顺序与扫描游标，以及本纪元结转到下一纪元的票据。
// 扫描时按 Pending[Cursor:] 的顺序提供见证，才能重建注册时的哈希链。
type Book struct {
	Pending []CallbackCom `json:"pending"`
	Cursor  int           `json:"cursor"`
	Carried []CallbackCom `json:"carried"`
}

// Register 注册新票据（追加到当前累加器末尾）
func (b *Book) Register(c CallbackCom) {
	b.Pending = append(b.Pending, c)
}

// Remaining 当前纪元尚未见证的票据数
func (b *Book) Remaining() int {
	return len(b.Pending) - b.Cursor
}

// Peek 返回接下来最多 n 张待见证票据
func (b *Book) Peek(n int) []CallbackCom {
	end := b.Cursor + n
	if end > len(b.Pending) {
		end = len(b.Pending)
	}
	out := make([]CallbackCom, end-b.Cursor)
	copy(out, b.Pending[b.Cursor:end])
	return out
}

// Consume 推进游标并记录结转票据
func (b *Book) Consume(n int, carried []CallbackCom) {
	b.Cursor += n
	if b.Cursor > len(b.Pending) {
		b.Cursor = len(b.Pending)
	}
	b.Carried = append(b.Carried, carried...)
}

// CloseEpoch 纪元收敛：结转票据成为新的累加器内容
func (b *Book) CloseEpoch() {
	b.Pending = b.Carried
	b.Carried = nil
	b.Cursor = 0
}

// Clone 深拷贝
func (b Book) Clone() Book {
	out := Book{Cursor: b.Cursor}
	out.Pending = append([]CallbackCom(nil), b.Pending...)
	out.Carried = append([]CallbackCom(nil), b.Carried...)
	return out
}
