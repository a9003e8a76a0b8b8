package shortcode

// Entry is one row of the SAS emoji table: a short name for
// logging/accessibility plus the glyph a client renders.
type Entry struct {
	Name  string
	Glyph string
}

// Table is the 64-entry Matrix SAS emoji set, indexed by the 6-bit
// values Emoji produces.
var Table = [64]Entry{
	{"Dog", "🐶"}, {"Cat", "🐱"}, {"Lion", "🦁"}, {"Horse", "🐎"},
	{"Unicorn", "🦄"}, {"Pig", "🐷"}, {"Elephant", "🐘"}, {"Rabbit", "🐰"},
	{"Panda", "🐼"}, {"Rooster", "🐓"}, {"Penguin", "🐧"}, {"Turtle", "🐢"},
	{"Fish", "🐟"}, {"Octopus", "🐙"}, {"Butterfly", "🦋"}, {"Flower", "🌷"},
	{"Tree", "🌳"}, {"Cactus", "🌵"}, {"Mushroom", "🍄"}, {"Globe", "🌏"},
	{"Moon", "🌙"}, {"Cloud", "☁️"}, {"Fire", "🔥"}, {"Banana", "🍌"},
	{"Apple", "🍎"}, {"Strawberry", "🍓"}, {"Corn", "🌽"}, {"Pizza", "🍕"},
	{"Cake", "🎂"}, {"Heart", "❤️"}, {"Smiley", "😀"}, {"Robot", "🤖"},
	{"Hat", "🎩"}, {"Glasses", "👓"}, {"Spanner", "🔧"}, {"Santa", "🎅"},
	{"Thumbs up", "👍"}, {"Umbrella", "☂️"}, {"Hourglass", "⌛"}, {"Clock", "⏰"},
	{"Gift", "🎁"}, {"Light bulb", "💡"}, {"Book", "📖"}, {"Pencil", "✏️"},
	{"Paperclip", "📎"}, {"Scissors", "✂️"}, {"Lock", "🔒"}, {"Key", "🔑"},
	{"Hammer", "🔨"}, {"Telephone", "☎️"}, {"Flag", "🏁"}, {"Train", "🚂"},
	{"Bicycle", "🚲"}, {"Aeroplane", "✈️"}, {"Rocket", "🚀"}, {"Trophy", "🏆"},
	{"Ball", "⚽"}, {"Guitar", "🎸"}, {"Trumpet", "🎺"}, {"Bell", "🔔"},
	{"Anchor", "⚓"}, {"Headphones", "🎧"}, {"Folder", "📁"}, {"Pin", "📌"},
}
