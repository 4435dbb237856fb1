package rendezvous

// maxMembers is the number of participants a room can hold.
const maxMembers = 2

// Room is a rendezvous point for exactly two participants.
type Room struct {
	Name    string
	Members []*Client
}

func (r *Room) add(c *Client) {
	r.Members = append(r.Members, c)
	c.room = r.Name
}

func (r *Room) remove(c *Client) {
	for i, m := range r.Members {
		if m == c {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			break
		}
	}
	c.room = ""
}

// other returns the participant that is not c, or nil.
func (r *Room) other(c *Client) *Client {
	for _, m := range r.Members {
		if m != c {
			return m
		}
	}
	return nil
}

func (r *Room) full() bool {
	return len(r.Members) >= maxMembers
}
