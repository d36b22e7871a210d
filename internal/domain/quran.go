package domain

// SurahCount is the number of surahs in the mushaf.
const SurahCount = 114

var ayahCounts = [SurahCount]int{
	7, 286, 200, 176, 120, 165, 206, 75, 129, 109, 123, 111, 43, 52, 99, 128, 111, 110, 98, 135,
	112, 78, 118, 64, 77, 227, 93, 88, 69, 60, 34, 30, 73, 54, 45, 83, 182, 88, 75, 85,
	54, 53, 89, 59, 37, 35, 38, 29, 18, 45, 60, 49, 62, 55, 78, 96, 29, 22, 24, 13,
	14, 11, 11, 18, 12, 12, 30, 52, 52, 44, 28, 28, 20, 56, 40, 31, 50, 40, 46, 42,
	29, 19, 36, 25, 22, 17, 19, 26, 30, 20, 15, 21, 11, 8, 8, 19, 5, 8, 8, 11,
	11, 8, 3, 9, 5, 4, 7, 3, 6, 3, 5, 4, 5, 6,
}

// AyahCount returns the number of ayat of a surah, 0 for an unknown surah.
func AyahCount(surah int) int {
	if surah < 1 || surah > SurahCount {
		return 0
	}
	return ayahCounts[surah-1]
}

// Valid reports whether the key names an ayah of the mushaf.
func (k VerseKey) Valid() bool {
	return k.Ayah >= 1 && k.Ayah <= AyahCount(k.Surah)
}

// Next is the ayah recited after k, crossing into the following surah.
func (k VerseKey) Next() (VerseKey, bool) {
	if !k.Valid() {
		return VerseKey{}, false
	}
	if k.Ayah < AyahCount(k.Surah) {
		return VerseKey{Surah: k.Surah, Ayah: k.Ayah + 1}, true
	}
	if k.Surah == SurahCount {
		return VerseKey{}, false
	}
	return VerseKey{Surah: k.Surah + 1, Ayah: 1}, true
}

// Previous is the ayah recited before k, crossing into the preceding surah.
func (k VerseKey) Previous() (VerseKey, bool) {
	if !k.Valid() {
		return VerseKey{}, false
	}
	if k.Ayah > 1 {
		return VerseKey{Surah: k.Surah, Ayah: k.Ayah - 1}, true
	}
	if k.Surah == 1 {
		return VerseKey{}, false
	}
	return VerseKey{Surah: k.Surah - 1, Ayah: AyahCount(k.Surah - 1)}, true
}
