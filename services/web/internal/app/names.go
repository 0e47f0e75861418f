package app

import "math/rand/v2"

var firstNames = []string{
	"Ikerada", "Manamaya", "Managuchi", "Muya", "Dokaki", "Sunen", "Fuyashi", "Uyebaru", "Ogano",
	"Kimari", "Matsumaya", "Uyekita", "Kurizora", "Isekawa", "Wakagiri", "Kinobi", "Nabira",
	"Tonari", "Wakikaze", "Harizaki", "Hashibira", "Suzuzora", "Nonaga", "Shinoraki", "Tatsuchi",
	"Miyasuchi", "Susano", "Hirogusa", "Yakutsu", "Zaruta", "Hisamari", "Segita", "Hiratsami",
	"Hisagai", "Hawa", "Hamahaya", "Azumoto", "Sekigimoto", "Agayama", "Yamayuki", "Kaguse",
	"Fubuto", "Rikizawa", "Amayashi", "Amari", "Tahatsumi", "Kawawara", "Adasuchi", "Matsuka",
	"Harato", "Wakukita", "Tomikino", "Takegome", "Uzuki", "Ikenari", "Haramaki", "Fukuzato",
	"Fujimiya", "Amara", "Tanimoto", "Kodakono", "Hashinashi", "Morinishi", "Yanaya", "Hoguchi",
	"Kobagawa", "Manami", "Isogami", "Homuro", "Kagushiro", "Masawa", "Ichisano", "Yamamano",
	"Kojima", "Hashitsu", "Sune", "Imakuwa", "Harakiri", "Akagaki", "Nariyoshi", "Yashima",
	"Tatsuno", "Yoshikawa", "Tsuruoka", "Tanabe", "Dokuro", "Arashiro", "Kozato", "Oishi",
	"Tsuchiya", "Eguchi", "Minamoto", "Ametsuchi", "Yukiyama", "Miyazawa", "Tano", "Watanuki",
	"Takagi", "Ishibashi", "Imamura", "Jo", "Yamabe", "Sawaya", "Tsukiyama", "Kitagawa",
}

var surnames = []string{
	"Kunitan", "Sayoshi", "Naritane", "Tadake", "Benjiyasu", "Ineshida", "Ketaro", "Kamansei",
	"Yakabei", "Hinmochi", "Milimiko", "Hoshine", "Midome", "Kimime", "Ryosa", "Kirazuka",
	"Masutsu", "Haninuye", "Kanemami", "Tatsumo", "Kukitako", "Tokizuka", "Tanigi", "Akotsune",
	"Minena", "Osarako", "Sayonari", "Sayokuri", "Orimachi", "Azunatsu", "Achiko", "Makizuka",
	"Kazatako", "Himekiko", "Kuruze", "Temika", "Natsukuri", "Tame", "Wakase", "Kurari",
	"Hikachiko", "Hidiri", "Hainari", "Arisuki", "Yara", "Hoshirabi", "Umetako", "Tanakayo",
	"Toshirise", "Milikari", "Sawaki", "Himeshiko", "Sakikura", "Urasuki", "Kyotako", "Imani",
	"Saizumi", "Atsudoka", "Natsurari", "Sayochiru", "Kohayoshi", "Emirime", "Takanase",
	"Kozatsuki", "Tsudoka", "Wana", "Tatsushi", "Kahokichi", "Aize", "Natsumika", "Komami",
	"Sanomi", "Kirarime", "Edoka", "Tadachiru", "Anekayo", "Gime", "Maemachi", "Kimiruri",
	"Asumi", "Misa", "Reira", "Kouko", "Toshie", "Himeko", "Mayako", "Isaki", "Ome", "Yu",
	"Aishun", "Rinako", "Sute", "Arisa", "Honomi", "Tatsumi", "Fuji", "Tamaki", "Ai", "Taki",
	"Amarante", "Eriko", "Kinuyo", "Fuyu", "Emu", "Aneka",
}

// RandomName suggests a waifu name for the creator form.
func RandomName() string {
	return firstNames[rand.IntN(len(firstNames))] + " " + surnames[rand.IntN(len(surnames))]
}
