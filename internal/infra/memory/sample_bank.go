package memory

import "hifdh-quest-service/internal/domain"

// SampleBankID names the bundled demo bank.
const SampleBankID = "juz-amma-sample"

// SampleBank is a small bank for local runs without Postgres.
func SampleBank() domain.VerseBank {
	verses := []domain.Verse{}
	add := func(surah int, name string, texts ...[2]string) {
		for i, t := range texts {
			verses = append(verses, domain.Verse{
				SurahNumber: surah,
				SurahName:   name,
				AyahNumber:  i + 1,
				ArabicText:  t[0],
				Translation: t[1],
			})
		}
	}
	add(1, "Al-Fatihah",
		[2]string{"بسم الله الرحمن الرحيم", "In the name of Allah, the Entirely Merciful, the Especially Merciful."},
		[2]string{"الحمد لله رب العالمين", "All praise is due to Allah, Lord of the worlds."},
		[2]string{"الرحمن الرحيم", "The Entirely Merciful, the Especially Merciful,"},
		[2]string{"مالك يوم الدين", "Sovereign of the Day of Recompense."},
		[2]string{"إياك نعبد وإياك نستعين", "It is You we worship and You we ask for help."},
		[2]string{"اهدنا الصراط المستقيم", "Guide us to the straight path."},
		[2]string{"صراط الذين أنعمت عليهم غير المغضوب عليهم ولا الضالين", "The path of those upon whom You have bestowed favor, not of those who have earned anger or of those who are astray."},
	)
	add(112, "Al-Ikhlas",
		[2]string{"قل هو الله أحد", "Say, He is Allah, One."},
		[2]string{"الله الصمد", "Allah, the Eternal Refuge."},
		[2]string{"لم يلد ولم يولد", "He neither begets nor is born,"},
		[2]string{"ولم يكن له كفوا أحد", "Nor is there to Him any equivalent."},
	)
	add(113, "Al-Falaq",
		[2]string{"قل أعوذ برب الفلق", "Say, I seek refuge in the Lord of daybreak"},
		[2]string{"من شر ما خلق", "From the evil of that which He created"},
		[2]string{"ومن شر غاسق إذا وقب", "And from the evil of darkness when it settles"},
		[2]string{"ومن شر النفاثات في العقد", "And from the evil of the blowers in knots"},
		[2]string{"ومن شر حاسد إذا حسد", "And from the evil of an envier when he envies."},
	)
	add(114, "An-Nas",
		[2]string{"قل أعوذ برب الناس", "Say, I seek refuge in the Lord of mankind,"},
		[2]string{"ملك الناس", "The Sovereign of mankind,"},
		[2]string{"إله الناس", "The God of mankind,"},
		[2]string{"من شر الوسواس الخناس", "From the evil of the retreating whisperer"},
		[2]string{"الذي يوسوس في صدور الناس", "Who whispers evil into the breasts of mankind"},
		[2]string{"من الجنة والناس", "From among the jinn and mankind."},
	)
	return domain.VerseBank{ID: SampleBankID, Verses: verses}
}
