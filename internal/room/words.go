package room

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "jolly", "cozy", "shiny", "golden",
	"silver", "crimson", "emerald", "bright", "gentle", "brave", "calm", "swift", "quiet", "bouncy",
	"fuzzy", "plucky", "merry", "rusty", "sunny", "misty", "frosty", "mellow", "nimble", "lucky",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"badger", "beaver", "raccoon", "ferret", "heron", "dolphin", "narwhal", "penguin", "flamingo", "pelican",
	"sparrow", "robin", "toucan", "parrot", "canary", "gecko", "lynx", "marmot", "walrus", "wombat",
}

var things = []string{
	"doorbell", "lantern", "pebble", "cottage", "rocket", "comet", "orbit", "nebula", "canyon", "ridge",
	"meadow", "willow", "ember", "breeze", "maple", "marble", "biscuit", "muffin", "teapot", "button",
	"porch", "gate", "window", "chimney", "garden", "harbor", "lighthouse", "bridge", "village", "valley",
}
